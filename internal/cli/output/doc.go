// Package output renders redolog-cli results as tables, JSON or YAML,
// and draws the spinner and progress bar shown on interactive terminals.
//
// JSON and YAML share the json field names so scripts can switch
// between them. Tables are for people: sizes are humanized, empty
// values print as "-", and wide columns appear only with --wide.
package output
