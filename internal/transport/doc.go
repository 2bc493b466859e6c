// Package transport sends queue operations to a target CRM environment.
//
// The scheduler only sees Provider and Executor: a Provider resolves the
// Executor for an item's environment name and an Executor performs one batch
// call, returning one OperationResult per operation it got to. The shipped
// HTTPClient posts the batch as JSON to "<url>/batch" with a bearer token and
// retries transient failures while no results have been produced.
package transport
