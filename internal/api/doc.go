// Package api serves the chaindeploy REST interface: the resolved network
// table, compiler options and the deployment job endpoints.
package api
