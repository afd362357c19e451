// Package fragments provides the low-level, incremental byte-stream
// parser and two-pass serializer that the dbus package's object and
// message codecs are built on.
//
// Nothing in this package knows about DBus types or values. [Cont] only
// knows how to consume a bounded number of bytes and hand them to a
// callback; [Serializer] only knows how to measure or emit bytes and
// replay an array's precomputed length. The dbus package assembles these
// primitives into the type-specific codec it exposes.
package fragments
