// Package health checks whether the collector is reachable before a flush.
package health
