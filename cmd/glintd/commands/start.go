package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	dbm "github.com/tendermint/tm-db"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"github.com/glint-chain/glintd/libs/cli"
	glintmath "github.com/glint-chain/glintd/libs/math"
	glintos "github.com/glint-chain/glintd/libs/os"
	"github.com/glint-chain/glintd/light"
	dbs "github.com/glint-chain/glintd/light/store/db"
)

// StartCmd runs the light client daemon, tracking the head of the chain and
// serving the node's sync state over HTTP.
var StartCmd = &cobra.Command{
	Use:   "start [chainID]",
	Short: "Run the light client daemon",
	Long: `Run the light client daemon, verifying headers from a primary provider
and cross-checking them against one or more witnesses.

A fresh instance needs a primary RPC address, a trusted height and hash and
witness RPC addresses (if not using sequential verification). To restart the
daemon, thereafter only the chainID is required.

The daemon serves its sync state on /status and Prometheus metrics on
/metrics.`,
	RunE: runStart,
	Args: cobra.ExactArgs(1),
	Example: `glintd start glint-mainnet-1 -p http://52.57.29.196:26657 -w http://witness.example.com:26657
	--height 962118 --hash 28B97BE9F6DE51AC69F70E0B7BFD7E5C9CD1A595B7DC31AFF27C50D4948020CD`,
}

var (
	listenAddr         string
	primaryAddr        string
	witnessAddrsJoined string
	maxOpenConnections int

	sequential     bool
	trustingPeriod time.Duration
	trustedHeight  int64
	trustedHash    []byte
	trustLevelStr  string
	pruningSize    uint16
	updateInterval time.Duration

	primaryKey   = []byte("primary")
	witnessesKey = []byte("witnesses")
)

func init() {
	StartCmd.Flags().StringVar(&listenAddr, "laddr", "tcp://localhost:26680",
		"serve the daemon's status and metrics on the given address")
	StartCmd.Flags().StringVarP(&primaryAddr, "primary", "p", "",
		"connect to a Glint node at this address")
	StartCmd.Flags().StringVarP(&witnessAddrsJoined, "witnesses", "w", "",
		"Glint nodes to cross-check the primary node, comma-separated")
	StartCmd.Flags().IntVar(&maxOpenConnections, "max-open-connections", 900,
		"maximum number of simultaneous connections to the status server")
	StartCmd.Flags().DurationVar(&trustingPeriod, "trusting-period", 168*time.Hour,
		"trusting period that headers can be verified within. Should be significantly less than the unbonding period")
	StartCmd.Flags().Int64Var(&trustedHeight, "height", 1, "Trusted header's height")
	StartCmd.Flags().BytesHexVar(&trustedHash, "hash", []byte{}, "Trusted header's hash")
	StartCmd.Flags().StringVar(&trustLevelStr, "trust-level", "1/3",
		"trust level. Must be between 1/3 and 3/3")
	StartCmd.Flags().BoolVar(&sequential, "sequential", false,
		"sequential verification. Verify all headers sequentially as opposed to using skipping verification")
	StartCmd.Flags().Uint16Var(&pruningSize, "pruning-size", 1000,
		"maximum number of light blocks kept in the store (0 to disable pruning)")
	StartCmd.Flags().DurationVar(&updateInterval, "update-interval", 8*time.Second,
		"how often to poll the primary for the latest header")
}

func runStart(cmd *cobra.Command, args []string) error {
	chainID := args[0]
	home := viper.GetString(cli.HomeFlag)
	logger.Info("creating client", "chainID", chainID, "home", home)

	if err := glintos.EnsureDir(home, 0700); err != nil {
		return err
	}

	witnessesAddrs := []string{}
	if witnessAddrsJoined != "" {
		witnessesAddrs = strings.Split(witnessAddrsJoined, ",")
	}

	db, err := dbm.NewGoLevelDB("light-client-db", home)
	if err != nil {
		return fmt.Errorf("can't create a db: %w", err)
	}

	if primaryAddr == "" { // check to see if we can start from an existing state
		var err error
		primaryAddr, witnessesAddrs, err = checkForExistingProviders(db)
		if err != nil {
			return fmt.Errorf("failed to retrieve primary or witness from db: %w", err)
		}
		if primaryAddr == "" {
			return errors.New("no primary address was provided nor found. Please provide a primary (using -p)." +
				" Run the command: glintd start --help for more information")
		}
	} else {
		err := saveProviders(db, primaryAddr, witnessAddrsJoined)
		if err != nil {
			logger.Error("unable to save primary and or witness addresses", "err", err)
		}
	}

	trustLevel, err := glintmath.ParseFraction(trustLevelStr)
	if err != nil {
		return fmt.Errorf("can't parse trust level: %w", err)
	}

	options := []light.Option{
		light.Logger(logger),
		light.PruningSize(pruningSize),
		light.WithMetrics(light.PrometheusMetrics("glint")),
		light.ConfirmationFunction(func(action string) bool {
			fmt.Println(action)
			scanner := bufio.NewScanner(os.Stdin)
			for {
				scanner.Scan()
				response := scanner.Text()
				switch response {
				case "y", "Y":
					return true
				case "n", "N":
					return false
				default:
					fmt.Println("please input 'Y' or 'n' and press ENTER")
				}
			}
		}),
	}

	if sequential {
		options = append(options, light.SequentialVerification())
	} else {
		options = append(options, light.SkippingVerification(trustLevel))
	}

	var c *light.Client
	if trustedHeight > 0 && len(trustedHash) > 0 { // fresh installation
		c, err = light.NewHTTPClient(
			context.Background(),
			chainID,
			light.TrustOptions{
				Period: trustingPeriod,
				Height: trustedHeight,
				Hash:   trustedHash,
			},
			primaryAddr,
			witnessesAddrs,
			dbs.New(db, chainID),
			options...,
		)
	} else { // continue from latest state
		c, err = light.NewHTTPClientFromTrustedStore(
			chainID,
			trustingPeriod,
			primaryAddr,
			witnessesAddrs,
			dbs.New(db, chainID),
			options...,
		)
	}
	if err != nil {
		return err
	}

	listener, err := startListener(listenAddr, maxOpenConnections)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/status", statusHandler(c))
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Handler: mux}

	ctx, cancel := context.WithCancel(context.Background())

	// Stop upon receiving SIGTERM or CTRL-C.
	glintos.TrapSignal(logger, func() {
		cancel()
		listener.Close()
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting status server", "laddr", listenAddr)
		if err := server.Serve(listener); err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(updateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-gctx.Done():
				server.Close()
				return nil
			case <-ticker.C:
				lb, err := c.Update(gctx, time.Now())
				switch {
				case err != nil:
					logger.Error("can't update light client", "err", err)
					if errors.Is(err, light.ErrLightClientAttack) {
						return err
					}
				case lb != nil:
					logger.Info("updated light client", "height", lb.Height, "hash", lb.Hash())
				}
			}
		}
	})

	return g.Wait()
}

// statusHandler reports the client's sync state as JSON.
func statusHandler(c *light.Client) http.HandlerFunc {
	type syncState struct {
		ChainID           string   `json:"chain_id"`
		LastTrustedHeight int64    `json:"last_trusted_height"`
		LastTrustedHash   string   `json:"last_trusted_hash"`
		Primary           string   `json:"primary"`
		Witnesses         []string `json:"witnesses"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		state := syncState{
			ChainID: c.ChainID(),
			Primary: c.Primary().String(),
		}
		for _, witness := range c.Witnesses() {
			state.Witnesses = append(state.Witnesses, witness.String())
		}

		if height, err := c.LastTrustedHeight(); err == nil && height > 0 {
			state.LastTrustedHeight = height
			if lb, err := c.TrustedLightBlock(height); err == nil {
				state.LastTrustedHash = lb.Hash().String()
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(state); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

func startListener(addr string, maxConns int) (net.Listener, error) {
	parts := strings.SplitN(addr, "://", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid listen address %s (expected scheme://host:port)", addr)
	}
	proto, address := parts[0], parts[1]

	listener, err := net.Listen(proto, address)
	if err != nil {
		return nil, err
	}

	if maxConns > 0 {
		listener = netutil.LimitListener(listener, maxConns)
	}
	return listener, nil
}

func checkForExistingProviders(db dbm.DB) (string, []string, error) {
	primaryBytes, err := db.Get(primaryKey)
	if err != nil {
		return "", []string{""}, err
	}
	witnessesBytes, err := db.Get(witnessesKey)
	if err != nil {
		return "", []string{""}, err
	}
	witnessesAddrs := strings.Split(string(witnessesBytes), ",")
	return string(primaryBytes), witnessesAddrs, nil
}

func saveProviders(db dbm.DB, primaryAddr, witnessesAddrs string) error {
	err := db.Set(primaryKey, []byte(primaryAddr))
	if err != nil {
		return fmt.Errorf("failed to save primary provider: %w", err)
	}
	err = db.Set(witnessesKey, []byte(witnessesAddrs))
	if err != nil {
		return fmt.Errorf("failed to save witness providers: %w", err)
	}
	return nil
}
