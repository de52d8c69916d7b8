// Package core orchestrates engine calls for single households, sweeps,
// grids and reform comparisons, and persists cached results.
package core
