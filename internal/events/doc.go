// Package events decouples task producers from the queue store through
// an enqueue-request emitter.
package events
