// Package parse classifies fetched TestFlight page content into a beta
// availability status.
//
// Classification is driven by an ordered table of phrase rules matched
// case-insensitively against normalized page text. Open-signal phrases are
// checked before full and closed phrases so the highest-value signal is never
// masked by more generic phrasing elsewhere on the page.
package parse
