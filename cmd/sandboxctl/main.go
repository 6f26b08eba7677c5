// Command sandboxctl is the operator CLI for the sandbox core control
// plane, adapted from the teacher's ocx-cli (an HTTP/REST gateway client)
// into a gRPC client dialing internal/controlplane directly via
// pb.SandboxCoreClient.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/ocx/sandboxcore/internal/fam"
	"github.com/ocx/sandboxcore/pb"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	addr := os.Getenv("SANDBOXCTL_ADDR")
	if addr == "" {
		addr = "localhost:7700"
	}

	switch os.Args[1] {
	case "track-root":
		withClient(addr, cmdTrackRoot)
	case "queue-size":
		withClient(addr, cmdQueueSize)
	case "allocate-queue":
		withClient(addr, cmdAllocateQueue)
	case "free-queues":
		withClient(addr, cmdFreeQueues)
	case "introspect":
		withClient(addr, cmdIntrospect)
	case "version":
		fmt.Printf("sandboxctl v%s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`sandboxctl v` + version + `

Usage: sandboxctl <command> [flags]

Commands:
  track-root      Register a process tree (--client-pid, --root-pid)
  queue-size      Set a client's report queue size tunable (--client-pid, --mib)
  allocate-queue  Allocate the next pending report queue (--client-pid)
  free-queues     Release all queues for a client (--client-pid)
  introspect      List every tracked process tree
  version         Print version
  help            Show this help

Environment:
  SANDBOXCTL_ADDR   Control plane gRPC address (default: localhost:7700)

Examples:
  sandboxctl track-root --client-pid 100 --root-pid 101
  sandboxctl queue-size --client-pid 100 --mib 32
  sandboxctl introspect`)
}

func withClient(addr string, fn func(ctx context.Context, c pb.SandboxCoreClient)) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		pb.ClientCodec(),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial %s: %v\n", addr, err)
		os.Exit(1)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	fn(ctx, pb.NewSandboxCoreClient(conn))
}

func flagValue(args []string, name string) string {
	for i, a := range args {
		if a == name && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// cmdTrackRoot builds an allow-all manifest for --root-path (default "/")
// and registers it under --client-pid/--root-pid. Real callers (the
// client-side interposition shim) build a far more specific manifest;
// this is an operator escape hatch for manual testing.
func cmdTrackRoot(ctx context.Context, c pb.SandboxCoreClient) {
	args := os.Args[2:]
	clientPid := parseInt32(flagValue(args, "--client-pid"))
	rootPid := parseInt32(flagValue(args, "--root-pid"))
	rootPath := flagValue(args, "--root-path")
	if rootPath == "" {
		rootPath = "/"
	}
	if clientPid == 0 || rootPid == 0 {
		fmt.Fprintln(os.Stderr, "Usage: sandboxctl track-root --client-pid <pid> --root-pid <pid> [--root-path <path>]")
		os.Exit(1)
	}

	m := &fam.Manifest{
		RootProcessPath: rootPath,
		ScopeRoot:       &fam.ScopeNode{PolicyMask: fam.AllowAll, ConePolicy: fam.AllowAll},
		Salt:            []byte{},
	}
	buf, err := fam.Serialize(m)
	if err != nil {
		fmt.Fprintf(os.Stderr, "serializing manifest: %v\n", err)
		os.Exit(1)
	}

	ack, err := c.TrackRoot(ctx, &pb.TrackRootRequest{ClientPid: clientPid, RootPid: rootPid, Fam: buf})
	printAck(ack, err)
}

func cmdQueueSize(ctx context.Context, c pb.SandboxCoreClient) {
	args := os.Args[2:]
	clientPid := parseInt32(flagValue(args, "--client-pid"))
	mib := parseInt32(flagValue(args, "--mib"))
	if clientPid == 0 || mib == 0 {
		fmt.Fprintln(os.Stderr, "Usage: sandboxctl queue-size --client-pid <pid> --mib <size>")
		os.Exit(1)
	}
	ack, err := c.SetReportQueueSize(ctx, &pb.QueueSizeRequest{ClientPid: clientPid, QueueSizeMib: uint32(mib)})
	printAck(ack, err)
}

func cmdAllocateQueue(ctx context.Context, c pb.SandboxCoreClient) {
	clientPid := parseInt32(flagValue(os.Args[2:], "--client-pid"))
	if clientPid == 0 {
		fmt.Fprintln(os.Stderr, "Usage: sandboxctl allocate-queue --client-pid <pid>")
		os.Exit(1)
	}
	ack, err := c.AllocateReportQueue(ctx, &pb.ClientRequest{ClientPid: clientPid})
	printAck(ack, err)
}

func cmdFreeQueues(ctx context.Context, c pb.SandboxCoreClient) {
	clientPid := parseInt32(flagValue(os.Args[2:], "--client-pid"))
	if clientPid == 0 {
		fmt.Fprintln(os.Stderr, "Usage: sandboxctl free-queues --client-pid <pid>")
		os.Exit(1)
	}
	ack, err := c.FreeReportQueues(ctx, &pb.ClientRequest{ClientPid: clientPid})
	printAck(ack, err)
}

func cmdIntrospect(ctx context.Context, c pb.SandboxCoreClient) {
	list, err := c.Introspect(ctx, &pb.Empty{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "introspect failed: %v\n", err)
		os.Exit(1)
	}
	if len(list.Pips) == 0 {
		fmt.Println("No tracked process trees.")
		return
	}
	fmt.Printf("%-10s %-10s %-10s %-10s %s\n", "PIP", "CLIENT", "ROOT", "STATE", "ROOT PATH")
	for _, p := range list.Pips {
		fmt.Printf("%-10d %-10d %-10d %-10s %s\n", p.PipId, p.ClientPid, p.RootPid, p.State, p.RootPath)
	}
}

func printAck(ack *pb.Ack, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "request failed: %v\n", err)
		os.Exit(1)
	}
	if ack.Code != pb.CodeSuccess {
		fmt.Printf("%s: %s\n", ack.Code, ack.Message)
		os.Exit(1)
	}
	fmt.Printf("ok: %s\n", ack.Message)
}

func parseInt32(s string) int32 {
	var v int64
	fmt.Sscanf(s, "%d", &v)
	return int32(v)
}
