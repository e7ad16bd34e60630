// Package audit delivers security events off the request path.
//
// The engine builds an [Event] per outcome and hands it to a [Dispatcher],
// which relays it to a [Sink] from one goroutine. Sinks: [NoOpSink],
// [ChannelSink] (tests), [JSONWriterSink] (one JSON object per line),
// [ZapSink] (structured log) and [KafkaSink] (one message per event, keyed by
// account, IP or request so one actor's events stay ordered).
//
// Which events exist is decided by the engine. Sinks never see passwords,
// hashes, tokens or codes.
package audit
