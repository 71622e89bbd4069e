// Package synthkit runs batched command sequences in logic synthesis
// tools and attributes the output to each command.
package synthkit

// Version is the synthkit release version.
const Version = "0.1.0"
