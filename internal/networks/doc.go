// Package networks resolves logical network names ("development",
// "ropsten", "mainnet", ...) into connection descriptors.
//
// Remote descriptors carry a ProviderFactory instead of a provider: signing
// providers open a connection as soon as they are built, so construction is
// deferred until a deployment actually selects the network. Factories are not
// memoized; every call builds a fresh provider.
//
// The resolver never reads the process environment on its own. Callers pass
// an Environment, built with FromOS, FromMap or LoadDotEnv.
package networks
