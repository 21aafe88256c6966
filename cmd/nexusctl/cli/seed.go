package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/greengold/nexus/internal/auth"
	"github.com/greengold/nexus/internal/inventory"
	"github.com/greengold/nexus/internal/shared"
)

// Catalog is the YAML document read by `nexusctl seed`.
type Catalog struct {
	Plants []CatalogPlant `yaml:"plants"`
}

// CatalogPlant describes one inventory item to create.
type CatalogPlant struct {
	Name        string `yaml:"name"`
	Price       string `yaml:"price"`
	Stock       int    `yaml:"stock"`
	Category    string `yaml:"category"`
	Description string `yaml:"description"`
	ImageURL    string `yaml:"image_url"`
	Active      *bool  `yaml:"active"`
}

// ReadCatalog decodes a catalog and rejects unknown keys.
func ReadCatalog(r io.Reader) (Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Catalog{}, fmt.Errorf("catalog: %w", err)
	}
	for i, p := range c.Plants {
		if strings.TrimSpace(p.Name) == "" {
			return Catalog{}, fmt.Errorf("catalog: plant %d has no name", i+1)
		}
		if _, err := decimal.NewFromString(p.Price); err != nil {
			return Catalog{}, fmt.Errorf("catalog: plant %q: invalid price %q", p.Name, p.Price)
		}
	}
	return c, nil
}

// Accounts creates and finds staff users.
type Accounts interface {
	CreateUser(ctx context.Context, in auth.NewUser) (auth.User, error)
}

// AccountFinder looks users up by email.
type AccountFinder interface {
	FindByEmail(ctx context.Context, email string) (auth.User, error)
}

// Plants is the inventory surface the seeder writes through.
type Plants interface {
	List(ctx context.Context, f inventory.ListFilter) ([]inventory.Item, error)
	Create(ctx context.Context, in inventory.CreateInput) (inventory.Item, error)
}

// Seeder bootstraps an empty installation.
type Seeder struct {
	Accounts Accounts
	Finder   AccountFinder
	Plants   Plants
}

// SeedResult counts what a seed run changed.
type SeedResult struct {
	AdminID       uuid.UUID
	AdminCreated  bool
	PlantsCreated int
	PlantsSkipped int
}

// Run ensures the admin account exists and loads catalog plants whose names
// are not already in inventory. It is safe to run repeatedly.
func (s Seeder) Run(ctx context.Context, adminEmail, adminPassword string, catalog Catalog) (SeedResult, error) {
	var res SeedResult
	admin, err := s.Accounts.CreateUser(ctx, auth.NewUser{
		Email: adminEmail, Name: "Administrator", Password: adminPassword, Role: shared.RoleAdmin,
	})
	switch {
	case err == nil:
		res.AdminCreated = true
	case errors.Is(err, auth.ErrEmailTaken):
		admin, err = s.Finder.FindByEmail(ctx, adminEmail)
		if err != nil {
			return res, fmt.Errorf("seed: find admin: %w", err)
		}
	default:
		return res, fmt.Errorf("seed: create admin: %w", err)
	}
	res.AdminID = admin.ID

	ctx = shared.ContextWithActor(ctx, shared.Actor{UserID: admin.ID, Role: shared.RoleAdmin})
	existing, err := s.Plants.List(ctx, inventory.ListFilter{})
	if err != nil {
		return res, fmt.Errorf("seed: list inventory: %w", err)
	}
	seen := make(map[string]struct{}, len(existing))
	for _, it := range existing {
		seen[strings.ToLower(it.Name)] = struct{}{}
	}
	for _, p := range catalog.Plants {
		key := strings.ToLower(strings.TrimSpace(p.Name))
		if _, ok := seen[key]; ok {
			res.PlantsSkipped++
			continue
		}
		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			return res, fmt.Errorf("seed: plant %q: %w", p.Name, err)
		}
		if _, err := s.Plants.Create(ctx, inventory.CreateInput{
			Name: p.Name, Price: price, Stock: p.Stock, Category: p.Category,
			Description: p.Description, ImageURL: p.ImageURL, Active: p.Active,
		}); err != nil {
			return res, fmt.Errorf("seed: plant %q: %w", p.Name, err)
		}
		seen[key] = struct{}{}
		res.PlantsCreated++
	}
	return res, nil
}

func newSeedCommand(e *env) *cobra.Command {
	var catalogPath, email, password string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the admin account and load a plant catalog",
		Example: `  nexusctl seed --admin-email owner@greengold.local --admin-password '...' \
    --catalog deploy/catalog.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if email == "" || password == "" {
				return fmt.Errorf("%w: --admin-email and --admin-password", errMissingFlag)
			}
			var catalog Catalog
			if catalogPath != "" {
				f, err := os.Open(catalogPath)
				if err != nil {
					return err
				}
				defer f.Close()
				if catalog, err = ReadCatalog(f); err != nil {
					return err
				}
			}
			pool, err := e.db(cmd.Context())
			if err != nil {
				return err
			}
			users := auth.NewRepository(pool)
			seeder := Seeder{
				Accounts: auth.NewService(users),
				Finder:   users,
				Plants:   inventory.NewService(inventory.NewRepository(pool), shared.NewAuditLogger(pool), nil, e.logger),
			}
			res, err := seeder.Run(cmd.Context(), email, password, catalog)
			if err != nil {
				return err
			}
			state := "existing"
			if res.AdminCreated {
				state = "created"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "admin %s (%s)\nplants created: %d, skipped: %d\n",
				res.AdminID, state, res.PlantsCreated, res.PlantsSkipped)
			return nil
		},
	}
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "path to a YAML plant catalog")
	cmd.Flags().StringVar(&email, "admin-email", os.Getenv("NEXUS_ADMIN_EMAIL"), "admin account email")
	cmd.Flags().StringVar(&password, "admin-password", os.Getenv("NEXUS_ADMIN_PASSWORD"), "admin account password")
	return cmd
}
