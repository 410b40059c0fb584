// Package proxy defines AppProxy: the interface between a chorus node and an
// application.
//
// The node hands each decided round to the application as a Batch of
// ConsensusEvents, in consensus order. The application submits opaque
// transactions through the SubmitCh channel; the node bundles them into its
// next self-Event. The inmem subpackage implements AppProxy for applications
// that run in the same process, and the dummy subpackage is a minimal such
// application used by the chorus command and in tests.
package proxy
