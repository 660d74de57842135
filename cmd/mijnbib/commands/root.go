package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"mijnbib/lib/bibliotheek"
	"mijnbib/lib/configutil"
	"mijnbib/lib/restyutil"
	"mijnbib/lib/serviceutil"
	"mijnbib/lib/telemetry"
	"mijnbib/lib/textutil"

	"github.com/antzucaro/matchr"
	"github.com/spf13/cobra"
)

// Config is the mijnbib.json5 file next to the working directory. A
// mijnbib.local.json5 sibling overrides it, which keeps credentials out of
// checked-in configs.
type Config struct {
	Username string `json:"username"`
	Password string `json:"password"`
	// AccountId preselects a membership for commands taking --account.
	AccountId   string `json:"account_id"`
	LoginMethod string `json:"login_method"`
	BaseUrl     string `json:"base_url"`
	Verbose     bool   `json:"verbose"`
}

var (
	configPath *string
	verbose    *bool
	jsonOutput *bool
)

var rootCmd = &cobra.Command{
	Use:   "mijnbib",
	Short: "mijnbib is a CLI for the Mijn Bibliotheek member portal (bibliotheek.be).",
}

func init() {
	configPath = rootCmd.PersistentFlags().String("config", "mijnbib.json5", "The config file to read credentials from.")
	verbose = rootCmd.PersistentFlags().Bool("verbose", false, "Enable debug logging and HTTP transcripts.")
	jsonOutput = rootCmd.PersistentFlags().Bool("json", false, "Print records as JSON instead of tables.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func readConfig() Config {
	cfg, err := configutil.ReadConfig[Config](*configPath)
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}
	if cfg.Username == "" || cfg.Password == "" {
		serviceutil.Fatal("config is incomplete", fmt.Errorf("username and password are required in %s", *configPath))
	}
	return cfg
}

// createClient reads the config, builds a client and logs it in. Every
// subcommand goes through here, so flags and config are applied uniformly.
func createClient(ctx context.Context) (*bibliotheek.Client, Config) {
	cfg := readConfig()
	telemetry.InitSlog(*verbose || cfg.Verbose)
	if *verbose || cfg.Verbose {
		bibliotheek.SetRestyInstrumentOutput(restyutil.NewFilesystemOutput(".dev/resty/mijnbib"))
	}

	client, err := bibliotheek.NewClient(ctx, bibliotheek.ClientOptions{
		BaseUrl: cfg.BaseUrl,
		Method:  bibliotheek.LoginMethod(cfg.LoginMethod),
	})
	if err != nil {
		serviceutil.Fatal("failed to initialize client", err)
	}

	err = client.Login(ctx, bibliotheek.Credentials{
		Email:    cfg.Username,
		Password: cfg.Password,
	})
	if err != nil {
		serviceutil.Fatal("failed to log in", err)
	}
	return client, cfg
}

// resolveAccount turns the --account argument (or the configured account_id)
// into a membership id. A value that is not a known id is matched fuzzily
// against the library names, so "gent" finds "Dijk92 - Bibliotheek Gent".
func resolveAccount(ctx context.Context, client *bibliotheek.Client, arg string, cfg Config) (bibliotheek.Account, error) {
	if arg == "" {
		arg = cfg.AccountId
	}

	accounts, err := client.Accounts(ctx)
	if err != nil {
		return bibliotheek.Account{}, err
	}
	if len(accounts) == 0 {
		return bibliotheek.Account{}, fmt.Errorf("the profile has no memberships")
	}
	if arg == "" {
		if len(accounts) == 1 {
			return accounts[0], nil
		}
		var names []string
		for _, a := range accounts {
			names = append(names, fmt.Sprintf("%s (%s)", a.Name, a.Id))
		}
		return bibliotheek.Account{}, fmt.Errorf(
			"multiple memberships, pick one with --account: %s",
			strings.Join(names, ", "),
		)
	}

	for _, a := range accounts {
		if a.Id == arg {
			return a, nil
		}
	}

	target := textutil.NormalizeName(arg)
	best := -1
	bestSim := 0.0
	for i, a := range accounts {
		sim := matchr.JaroWinkler(textutil.NormalizeName(a.Name), target, false)
		if sim > bestSim {
			bestSim = sim
			best = i
		}
	}
	if best < 0 || bestSim < 0.6 {
		return bibliotheek.Account{}, fmt.Errorf("no membership matches %q", arg)
	}
	return accounts[best], nil
}
