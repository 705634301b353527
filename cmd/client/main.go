package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/openoutcry/crier/internal/identity"
	"github.com/openoutcry/crier/pkg/wire"
)

const userNameFile = "username"

var (
	serverURL string
	dataDir   string
	userName  string
)

func main() {
	root := &cobra.Command{
		Use:          "crier-client",
		Short:        "CLI client for the crier auction server",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&serverURL, "server", "http://127.0.0.1:8080", "auction server base URL")
	root.PersistentFlags().StringVar(&dataDir, "data-dir", "./client-data", "directory for the identity seed and user name")
	root.PersistentFlags().StringVar(&userName, "name", "", "user name attached to commands (persisted on first use)")

	root.AddCommand(createCmd(), bidCmd(), closeCmd(), listCmd(), watchCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func createCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <name> <minPrice>",
		Short: "Create an auction",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			// The auction name may contain spaces; the last argument is the price.
			minPrice, err := strconv.ParseFloat(args[len(args)-1], 64)
			if err != nil {
				return fmt.Errorf("invalid minimum price %q", args[len(args)-1])
			}
			name := strings.Join(args[:len(args)-1], " ")

			c, err := newClient()
			if err != nil {
				return err
			}
			req := wire.CreateAuctionRequest{Name: name, MinPrice: minPrice, UserName: c.userName}
			req.Signature, req.PublicKey = c.sign(req)

			var resp wire.CreateAuctionResponse
			if err := c.call("createAuction", req, &resp); err != nil {
				return err
			}
			fmt.Printf("auction created: %s\n", resp.ID)
			return nil
		},
	}
}

func bidCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bid <auctionId> <amount>",
		Short: "Place a bid",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid amount %q", args[1])
			}
			c, err := newClient()
			if err != nil {
				return err
			}
			req := wire.CreateBidRequest{AuctionID: args[0], Amount: amount, UserName: c.userName}
			req.Signature, req.PublicKey = c.sign(req)

			if err := c.call("createBid", req, nil); err != nil {
				return err
			}
			fmt.Println("bid accepted")
			return nil
		},
	}
}

func closeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "close <auctionId>",
		Short: "Finalize an auction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			req := wire.FinalizeAuctionRequest{AuctionID: args[0], UserName: c.userName}
			req.Signature, req.PublicKey = c.sign(req)

			var resp wire.FinalizeAuctionResponse
			if err := c.call("finalizeAuction", req, &resp); err != nil {
				return err
			}
			if resp.WinnerName == "" {
				fmt.Println("auction closed with no bids")
				return nil
			}
			fmt.Printf("auction closed: winner %s at %g\n", resp.WinnerName, resp.WinnerPrice)
			return nil
		},
	}
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known auctions with their current prices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			var auctions []wire.AuctionData
			if err := c.call("getAuctionData", struct{}{}, &auctions); err != nil {
				return err
			}
			for _, a := range auctions {
				price := a.MinPrice
				if a.CurrentPrice != nil {
					price = *a.CurrentPrice
				}
				status := "open"
				if a.Closed {
					status = "closed"
				}
				fmt.Printf("%s  %s  %g  %s\n", a.ID, a.Name, price, status)
			}
			return nil
		},
	}
}

func watchCmd() *cobra.Command {
	var listenAddr, advertiseURL string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Subscribe to auction events and print them as they arrive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			if advertiseURL == "" {
				advertiseURL = "http://127.0.0.1" + listenAddr
			}

			mux := http.NewServeMux()
			mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
				var evt wire.Event
				if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
					w.WriteHeader(http.StatusBadRequest)
					return
				}
				fmt.Printf("[%s] %s %s\n", time.Now().Format(time.RFC3339), evt.Event, string(evt.Data))
				w.WriteHeader(http.StatusOK)
			})

			if err := c.call("sub", wire.SubscribeRequest{Endpoint: advertiseURL}, nil); err != nil {
				return err
			}
			fmt.Printf("subscribed as %s, listening on %s\n", advertiseURL, listenAddr)
			return http.ListenAndServe(listenAddr, mux)
		},
	}
	cmd.Flags().StringVar(&listenAddr, "listen", ":9090", "address the event listener binds to")
	cmd.Flags().StringVar(&advertiseURL, "advertise", "", "public URL the server should push events to")
	return cmd
}

type client struct {
	http     *http.Client
	baseURL  string
	identity *identity.Identity
	userName string
}

func newClient() (*client, error) {
	id, err := identity.Load(dataDir)
	if err != nil {
		return nil, err
	}
	name, err := resolveUserName()
	if err != nil {
		return nil, err
	}
	return &client{
		http:     &http.Client{Timeout: 10 * time.Second},
		baseURL:  strings.TrimRight(serverURL, "/"),
		identity: id,
		userName: name,
	}, nil
}

// resolveUserName prefers the --name flag and persists it; otherwise it falls
// back to the name stored from a previous run.
func resolveUserName() (string, error) {
	path := filepath.Join(dataDir, userNameFile)
	if userName != "" {
		if err := os.WriteFile(path, []byte(userName), 0o600); err != nil {
			return "", fmt.Errorf("persist user name: %w", err)
		}
		return userName, nil
	}
	raw, err := os.ReadFile(path)
	if err == nil && len(raw) > 0 {
		return strings.TrimSpace(string(raw)), nil
	}
	return "", fmt.Errorf("no user name set, pass --name once to register one")
}

// sign signs the request as marshaled without signature fields and returns
// the hex signature and public key to attach.
func (c *client) sign(req any) (sig, pub string) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", ""
	}
	return c.identity.SignHex(payload), c.identity.PublicKeyHex()
}

func (c *client) call(command string, req, out any) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	resp, err := c.http.Post(c.baseURL+"/rpc/"+command, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return err
	}

	var generic wire.GenericResponse
	if err := json.Unmarshal(buf.Bytes(), &generic); err == nil && generic.Error != "" {
		return fmt.Errorf("server rejected command: %s", generic.Error)
	}
	if out != nil {
		return json.Unmarshal(buf.Bytes(), out)
	}
	return nil
}
