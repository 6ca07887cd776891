// Package circuitbreaker implements a closed/open/half-open circuit
// breaker wrapping outbound calls to the Embedding Gateway and the
// relational store (§4.6). Breaker is a thin wrapper over
// github.com/sony/gobreaker/v2 that maps the failure threshold, open
// duration, and half-open probe count onto gobreaker's settings.
package circuitbreaker
