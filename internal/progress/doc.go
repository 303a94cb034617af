// Package progress provides a human-readable progress display for
// single-artifact downloads.
//
// The reporter tracks bytes with an atomic counter so download code can
// report from any goroutine, and prints percentage, speed, and ETA on a
// fixed interval. Resumed downloads seed the counter with the byte
// offset they restart from.
package progress
