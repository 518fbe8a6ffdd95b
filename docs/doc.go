// Package docs provides generated OpenAPI documentation.
//
// rfptriage API
//
//	@title			rfptriage API
//	@version		1.0
//	@description	RFP triage and extraction pipeline: page classification, drawing OCR, and LED display spec extraction.
//	@termsOfService	http://swagger.io/terms/
//
//	@contact.name	API Support
//	@contact.url	https://github.com/jackzampolin/rfptriage
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host		localhost:8080
//	@BasePath	/
//
//	@schemes	http https
package docs

//go:generate swag init -g ../cmd/rfptriage/serve.go -o ./swagger --outputTypes go --parseDependency --parseInternal
