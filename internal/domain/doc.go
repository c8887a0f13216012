// Package domain models the station data export workflow.
//
// The user drives a wizard: pick stations, check which time ranges have
// recorded data, pick parameters and a date range, review a volume
// estimate, and download the resulting CSV. The domain layer holds the
// immutable catalogs, the selection snapshot, and the async result
// types with their query keys.
//
// # Query keys and staleness
//
// Availability and estimate results are tagged with the exact inputs
// that produced them (AvailabilityKey, EstimateKey). A cached result is
// valid only while the live selection still canonicalizes to the same
// key; anything else is stale and must never be shown as current.
//
// # Granularity codes
//
// The upstream service uses single-letter codes for temporal
// resolution:
//
//	U  minute         (7-day request blocks)
//	X  six minutes    (31-day request blocks)
//	H  hourly         (180-day request blocks)
//	J  daily          (365-day request blocks, "D" accepted as alias)
//
// The block limit is the maximum date span the service accepts in one
// download request; longer ranges are split client-side and the CSV
// payloads merged.
package domain
