// Package storage defines durable snapshots of provider catalog pages and
// the Store interface implemented by the memory and postgres adapters.
//
// A snapshot is the JSON form of one cached catalog page. The catalog
// cache writes snapshots through a Store so a restarted gateway can warm
// its cache from pages that are still within their TTL.
package storage
