// Command rdfmodels loads RDF/OWL models, resolves their import closures and
// converts them between serializations.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
