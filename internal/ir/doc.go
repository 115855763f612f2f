// Package ir provides the runtime value model shared by every vscript layer.
//
// This package contains value and type definitions only. All other internal
// packages import ir; ir imports nothing internal. This keeps the value model
// the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Value is a sealed interface: the concrete set of kinds is closed and
//     mirrors the tag enumeration of the binary format
//   - A Value's Type fully determines which accessor is legal; the As*
//     helpers panic on a mismatch because that is a programming error
//   - Dictionaries preserve insertion order so persistence round-trips exactly
//   - Colors are single precision everywhere; all other reals are float64
package ir
