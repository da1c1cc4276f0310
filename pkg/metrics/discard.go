package metrics

import "time"

// Discard accepts every recording and keeps nothing. It stands in for a Collector
// wherever metrics are optional.
var Discard discard

type discard struct{}

func (discard) RecordReceived()               {}
func (discard) RecordProcessed(time.Duration) {}
func (discard) RecordPublished()              {}
func (discard) RecordError()                  {}
func (discard) IncrementCustom(string)        {}
func (discard) StreamOpened()                 {}
func (discard) StreamClosed()                 {}
