// Package flows holds the decision logic behind every Engine operation.
//
// Each Run* function takes a dependency struct of plain functions and
// returns a result or a host sentinel error supplied through the struct's
// Errors field. Flows read the clock once per call and pass that instant to
// every store they touch.
//
// Flows own no resources and keep no state between calls. They must not
// import the root package.
package flows
