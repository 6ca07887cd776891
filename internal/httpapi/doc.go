// Package httpapi is the optional operational HTTP surface (§4.7): a health
// probe and pool-saturation metrics endpoint, separate from the Tool
// Protocol Layer that fronts memory operations over stdio. Memory CRUD is
// intentionally not exposed here.
package httpapi
