// Package errors provides the structured error type shared by the graph,
// computation and artifact cache packages.
//
// Every failure that crosses a package boundary carries a machine-readable
// ErrorCode. Callers branch on the code through CodeOf / HasCode rather than
// on message text, which also works through fmt.Errorf wrapping and
// errors.Join aggregation.
package errors
