// Package feed is the read-only status surface over the job store.
//
// Every call reads straight from the store; nothing is cached, so two reads
// separated by a write always observe the write. The HTTP API and the CLI
// watch dashboard are its only consumers and neither can mutate jobs through
// it.
package feed
