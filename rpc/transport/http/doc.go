// Package http carries rpc frames as http POST bodies.
//
// The shard ID is the request path (POST /{shardId}), the body is the
// serialized common.Message and the response body is the serialized reply.
// The client balances requests over all endpoints round robin and retries a
// failed request on the next endpoint.
//
// It is the slowest transport, but it can be put behind ordinary http
// infrastructure and inspected with curl when using the json serializer.
package http
