// Package stream fans committed transactions out to websocket subscribers.
//
// Each subscriber owns a growable ring buffer so that publishing never blocks
// the trade path. A subscriber that stops reading loses its oldest events once
// its buffer reaches the configured limit; the drop count is reported in Stats.
package stream
