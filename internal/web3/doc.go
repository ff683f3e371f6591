// Package web3 holds the chain-facing abstractions shared by the resolver,
// the signing provider adapter and the deployment pipeline: the Backend a
// provider talks to, the Provider itself, and the results a chain client
// reports back.
package web3
