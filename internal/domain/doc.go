// Package domain models a single river gauge feed and its alert tiers.
//
// # Data Source
//
// The gauge publishes one XML document with the most recent measurement:
//
//	<Root>
//	  <Datum>27. Oktober 2025</Datum>
//	  <Uhrzeit>15:25</Uhrzeit>
//	  <Pegel>3,68</Pegel>
//	  <Grafik>https://.../pegel.png</Grafik>
//	</Root>
//
// Datum, Uhrzeit and Pegel are required; Grafik is optional. The root element
// name is not fixed and is ignored.
//
// # Field Conventions
//
// Pegel is the water level in meters with a German decimal comma and exactly
// two fraction digits ("3,68" = 3.68 m). It is normalized to integer
// centimeters (368) by shifting two places and rounding half-up. Levels
// outside the nominal [0, 2000] cm range are accepted but flagged, because a
// flooding river can legitimately exceed the gauge's nominal scale.
//
// Datum is "<day>. <German month name> <4-digit year>" ("27. Oktober 2025").
// Uhrzeit is "<hour>:<2-digit minute>" with a 1- or 2-digit hour ("9:05").
// Both are reconstructed into a time.Time in the gauge's timezone. When the
// reconstructed calendar date does not round-trip (e.g. "31. Februar"), the
// reading falls back to the current time and carries ApproxTime=true so
// downstream consumers can tell an approximate timestamp from a measured one.
//
// # Alert Tiers
//
// Levels map to three half-open bands in centimeters:
//
//	NORMAL  [0, 400)
//	WARNING [400, 800)
//	DANGER  [800, ∞)
//
// Classification is total: every integer level, including negative ones,
// maps to exactly one tier.
package domain
