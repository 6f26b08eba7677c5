package reportqueue

import "errors"

// ErrNoClient is returned when an operation addresses a client_pid with no
// allocated queues.
var ErrNoClient = errors.New("reportqueue: no queues for client")

// ErrNoQueueAwaiting is returned by SetNotificationPort/MemoryDescriptorForNext
// when every allocated queue for the client has already received that
// resource — the client called the RPC more times than it allocated queues.
var ErrNoQueueAwaiting = errors.New("reportqueue: no queue awaiting that resource")
