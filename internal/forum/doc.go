// Package forum defines the records, interfaces, and error taxonomy shared by
// the ingestion pipeline and the query engine.
package forum
