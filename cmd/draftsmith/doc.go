// Command draftsmith is the CLI for the content pipeline: it runs the
// daemon, triggers discovery sweeps, and inspects workflows and the queue.
package main
