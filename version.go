// Package difftest holds build metadata shared by the difftest commands.
package difftest

// Version is overridden at build time via -ldflags.
var Version = "dev"
