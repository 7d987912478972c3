// Package crawler implements the recursive article crawler: canonical key
// normalization, content extraction, the visited registry, and the
// depth- and fan-out-bounded coordinator that assembles article trees.
package crawler
