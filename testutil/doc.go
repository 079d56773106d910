// Package testutil provides testing utilities for StreamKit integration tests.
//
// # Overview
//
// The testutil package contains an in-memory NATS client mock and helper
// functions designed to simplify writing integration tests for StreamKit
// components. All utilities are framework-agnostic with ZERO semantic domain
// concepts (no EntityID, MAVLink, robotics, or SOSA/SSN knowledge).
//
// # Core Components
//
// Mock Implementations:
//
// MockNATSClient - In-memory NATS client for testing pub/sub patterns:
//   - Thread-safe for concurrent use
//   - Stores all published messages for verification
//   - Supports subscription handlers
//   - No external NATS server required
//
// Test Helpers:
//
//   - WaitForMessage: Polls for message with timeout
//   - WaitForMessageCount: Waits for N messages
//   - AssertMessageReceived: Verifies message delivery
//   - AssertNoMessages: Verifies no messages sent
//
// # Design Principles
//
// Framework-Agnostic:
//
// All test utilities avoid semantic domain knowledge: they move opaque
// byte payloads by subject and never interpret them.
//
// This ensures testutil can be used across different applications without
// coupling to specific domains.
//
// Thread Safety:
//
// All mock types are safe for concurrent use from multiple goroutines.
// This enables testing concurrent message flows without data races:
//
//	// Safe to use from multiple goroutines
//	go client.Publish(ctx, "subject1", data1)
//	go client.Publish(ctx, "subject2", data2)
//	go handler1(client.GetMessages("subject1"))
//	go handler2(client.GetMessages("subject2"))
//
// Real Dependencies Preferred:
//
// Use mocks ONLY when real dependencies are impractical:
//   - ✅ Use testcontainers for NATS (real behavior)
//   - ⚠️ Use MockNATSClient when testcontainers unavailable
//   - ❌ Don't mock when real dependencies are fast/easy
//
// # Usage Examples
//
// Basic MockNATSClient:
//
//	func TestPublishSubscribe(t *testing.T) {
//	    client := testutil.NewMockNATSClient()
//
//	    // Subscribe to subject
//	    var received []byte
//	    err := client.Subscribe(ctx, "test.subject", func(_ context.Context, data []byte) {
//	        received = data
//	    })
//	    require.NoError(t, err)
//
//	    // Publish message
//	    err = client.Publish(ctx, "test.subject", []byte("hello"))
//	    require.NoError(t, err)
//
//	    // Verify message received
//	    assert.Equal(t, []byte("hello"), received)
//	}
//
// Wait Helpers:
//
//	func TestMessageFlow(t *testing.T) {
//	    client := testutil.NewMockNATSClient()
//
//	    // Start async publisher
//	    go func() {
//	        time.Sleep(100 * time.Millisecond)
//	        client.Publish(ctx, "events", []byte("data"))
//	    }()
//
//	    // Wait for message with timeout
//	    msg := testutil.WaitForMessage(t, client, "events", time.Second)
//	    assert.Equal(t, []byte("data"), msg)
//	}
//
// # Thread Safety Guarantees
//
// MockNATSClient uses sync.RWMutex for thread safety:
//   - Publish() - Write lock for map updates, releases before calling handlers
//   - Subscribe() - Write lock
//   - GetMessages() - Read lock, returns copy of slice
//   - Clear()/ClearAll() - Write lock
//
// # Performance Considerations
//
// WaitForMessage Polling:
//
// The WaitForMessage helper uses polling (10ms intervals) which adds latency:
//   - Each wait adds minimum 10ms to test execution
//   - With 100 tests using this → +1 second total
//
// For unit tests, prefer direct assertions. For integration tests where async
// behavior is expected, the polling overhead is acceptable.
//
// Mock vs Real Dependencies:
//
// Decision matrix:
//
//	| Scenario                    | Use Mock          | Use Real (testcontainers) |
//	|-----------------------------|-------------------|---------------------------|
//	| Unit test (component logic) | ✅ MockNATSClient | ❌ Overkill               |
//	| Integration test (E2E flow) | ❌ Incomplete     | ✅ Real NATS              |
//	| CI/CD pipeline             | ⚠️ Fast but fake   | ✅ Slow but real          |
//	| Local development          | ✅ Fast iteration | ⚠️ Docker overhead         |
//
// # Test Data Guidelines
//
// Generic vs Semantic Data:
//
// testutil ships no test data of its own; the mock carries whatever bytes a
// test publishes. If you need semantic data, create it in your test package,
// not in testutil.
//
// # Integration with Framework
//
// The testutil package integrates with StreamKit testing patterns:
//
// Shared NATS Client Pattern:
//
// For integration tests using real NATS:
//
//	func getSharedNATSClient(t *testing.T) *natsclient.Client {
//	    // Use testcontainers - one NATS server per test run
//	    // NOT testutil.MockNATSClient
//	}
//
// Use MockNATSClient only for unit tests or when testcontainers unavailable.
//
// # Known Limitations
//
//  1. WaitForMessage uses polling (10ms) - adds latency to tests
//  2. No support for NATS features like headers, request/reply patterns
//  3. No metrics or observability for mock operations
//
// These are design trade-offs - mocks prioritize simplicity over completeness.
//
// # See Also
//
//   - component: Component interface and lifecycle
//   - natsclient: Real NATS client wrapper
package testutil
