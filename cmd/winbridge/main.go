// Command winbridge runs a small in-process demo of the client/server fabric over a
// pair of wire.LocalBus endpoints, exercising the synchronous request/response path and
// a streamed file transfer without any real browser windows.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/winbridge/winbridge/channel"
	"github.com/winbridge/winbridge/client"
	"github.com/winbridge/winbridge/facade"
	"github.com/winbridge/winbridge/frame"
	"github.com/winbridge/winbridge/internal/config"
	"github.com/winbridge/winbridge/internal/nlog"
	"github.com/winbridge/winbridge/response"
	"github.com/winbridge/winbridge/server"
	"github.com/winbridge/winbridge/stream"
	"github.com/winbridge/winbridge/wire"
)

func main() {
	root := &cobra.Command{
		Use:   "winbridge",
		Short: "Demo driver for the postMessage-style request/response fabric",
	}
	root.AddCommand(newRequestCmd())
	root.AddCommand(newStreamCmd())
	root.AddCommand(newDownloadCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildPair() (clientSide, serverSide wire.Endpoint) {
	return wire.NewPair("https://parent.example", "https://child.example")
}

func newRequestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "request",
		Short: "Run the synchronous happy-path request/response scenario",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequestDemo()
		},
	}
}

func newStreamCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stream",
		Short: "Run the file-streaming request/response scenario",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStreamDemo()
		},
	}
}

func newDownloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "download",
		Short: "Run the server-to-client file download scenario",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDownloadDemo()
		},
	}
}

func runRequestDemo() error {
	clientSide, serverSide := buildPair()
	cache := channel.NewCache()
	cfg := config.Default()

	cliFacade := facade.New(facade.Options{
		Cache: cache, Self: clientSide, Role: frame.RoleClient,
		Target: serverSide, TargetOrigin: "https://child.example", Cfg: cfg,
	})
	c := client.New(cliFacade)

	srvFacade := facade.New(facade.Options{
		Cache: cache, Self: serverSide, Role: frame.RoleServer,
		Target: clientSide, TargetOrigin: "https://parent.example", Cfg: cfg,
	})
	srv := server.FromFacade(srvFacade)
	srv.Handle("/u", func(ctx context.Context, req *server.Request, resp *response.Response) (any, error) {
		resp.Status(200, "OK")
		return map[string]any{"name": "a"}, nil
	})

	c.Open()
	srv.Open()
	defer c.Destroy()
	defer srv.Destroy()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := c.Send(ctx, "/u", map[string]any{"id": 7}, client.SendOptions{RequireAck: true})
	if err != nil {
		return err
	}
	nlog.Infof("response: status=%d data=%v", resp.Status, resp.Data)
	return nil
}

func runStreamDemo() error {
	clientSide, serverSide := buildPair()
	cache := channel.NewCache()
	cfg := config.Default()

	cliFacade := facade.New(facade.Options{
		Cache: cache, Self: clientSide, Role: frame.RoleClient,
		Target: serverSide, TargetOrigin: "https://child.example", Cfg: cfg,
	})
	c := client.New(cliFacade)

	srvFacade := facade.New(facade.Options{
		Cache: cache, Self: serverSide, Role: frame.RoleServer,
		Target: clientSide, TargetOrigin: "https://parent.example", Cfg: cfg,
	})
	srv := server.FromFacade(srvFacade)

	received := make(chan []byte, 1)
	srv.Handle("/upload", func(ctx context.Context, req *server.Request, resp *response.Response) (any, error) {
		streamID, _ := frame.StreamIDOf(req.Frame)
		rd := stream.NewReadable(stream.ReadableOptions{
			Credit: 4,
			OnData: func(data any, done bool) {
				if s, ok := data.(string); ok {
					received <- []byte(s)
				}
			},
		})
		rd.Bind(srvFacade.Stream, streamID, true, func(f *frame.Frame) bool {
			f.TargetID = req.Frame.CreatorID
			return srvFacade.Outbox.SendMessage(f.Type, req.Frame.RequestID, f)
		})
		resp.Status(200, "OK")
		return map[string]any{"accepted": true}, nil
	})

	c.Open()
	srv.Open()
	defer c.Destroy()
	defer srv.Destroy()

	payload := &stream.FilePayload{Name: "demo.txt", MimeType: "text/plain", Bytes: []byte("hello from winbridge"), ChunkSize: 8}
	w := stream.NewFileWritable(payload, stream.WritableOptions{Chunked: true})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.SendStream(ctx, "/upload", w, client.SendOptions{}); err != nil {
		return err
	}

	select {
	case <-received:
		nlog.Infof("stream demo: first chunk received")
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timed out waiting for streamed chunk")
	}
	return nil
}

// runDownloadDemo exercises the opposite direction from runStreamDemo: the server
// answers a request with resp.SendFile instead of resp.Send, and the client's Send
// call resolves once its stream_start/stream_data/stream_end frames are reassembled,
// rather than needing a separate streamed-receive call of its own.
func runDownloadDemo() error {
	clientSide, serverSide := buildPair()
	cache := channel.NewCache()
	cfg := config.Default()

	cliFacade := facade.New(facade.Options{
		Cache: cache, Self: clientSide, Role: frame.RoleClient,
		Target: serverSide, TargetOrigin: "https://child.example", Cfg: cfg,
	})
	c := client.New(cliFacade)

	srvFacade := facade.New(facade.Options{
		Cache: cache, Self: serverSide, Role: frame.RoleServer,
		Target: clientSide, TargetOrigin: "https://parent.example", Cfg: cfg,
	})
	srv := server.FromFacade(srvFacade)
	srv.Handle("/download", func(ctx context.Context, req *server.Request, resp *response.Response) (any, error) {
		payload := &stream.FilePayload{
			Name:     "report.txt",
			MimeType: "text/plain",
			Bytes:    []byte("hello from winbridge, reassembled"),
		}
		return nil, resp.SendFile(ctx, payload, stream.WritableOptions{AutoResolve: true})
	})

	c.Open()
	srv.Open()
	defer c.Destroy()
	defer srv.Destroy()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := c.Send(ctx, "/download", nil, client.SendOptions{})
	if err != nil {
		return err
	}
	file, ok := resp.Data.(client.FileResponse)
	if !ok {
		return fmt.Errorf("download demo: expected client.FileResponse, got %T", resp.Data)
	}
	nlog.Infof("download demo: received %q (%d bytes, %s)", file.Name, len(file.Bytes), file.MimeType)
	return nil
}
