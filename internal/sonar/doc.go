// Package sonar holds the sonar data model shared by the rendering layers.
//
// Responsibilities: the wrap-aware Angle value type, the raw geometric
// configuration consumed by the geometry resolver (Config), and the
// telemetry record adapter (Sample) that extracts that configuration.
//
// Dependency rule: this package imports nothing else from the module.
// The geometry, lut, raster and render packages build on top of it.
package sonar
