package rdf

// Namespace IRIs used by the model layer.
const (
	RDFNamespace  = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	RDFSNamespace = "http://www.w3.org/2000/01/rdf-schema#"
	OWLNamespace  = "http://www.w3.org/2002/07/owl#"
	XSDNamespace  = "http://www.w3.org/2001/XMLSchema#"
)

var (
	RDFType  = IRI{Value: RDFNamespace + "type"}
	RDFFirst = IRI{Value: RDFNamespace + "first"}
	RDFRest  = IRI{Value: RDFNamespace + "rest"}
	RDFNil   = IRI{Value: RDFNamespace + "nil"}

	OWLOntology = IRI{Value: OWLNamespace + "Ontology"}
	OWLImports  = IRI{Value: OWLNamespace + "imports"}

	XSDString  = IRI{Value: XSDNamespace + "string"}
	XSDInteger = IRI{Value: XSDNamespace + "integer"}
	XSDDecimal = IRI{Value: XSDNamespace + "decimal"}
	XSDDouble  = IRI{Value: XSDNamespace + "double"}
	XSDBoolean = IRI{Value: XSDNamespace + "boolean"}
)

// WellKnownNamespaces returns the prefixes every model can rely on.
func WellKnownNamespaces() []Namespace {
	return []Namespace{
		{Prefix: "rdf", IRI: RDFNamespace},
		{Prefix: "rdfs", IRI: RDFSNamespace},
		{Prefix: "owl", IRI: OWLNamespace},
		{Prefix: "xsd", IRI: XSDNamespace},
	}
}
