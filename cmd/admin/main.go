package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"familygallery/internal/app"
	"familygallery/internal/config"
	"familygallery/internal/logging"
	"familygallery/internal/models"
	"familygallery/internal/validation"
)

func main() {
	// Define subcommands
	deleteCmd := flag.NewFlagSet("delete-account", flag.ExitOnError)
	previewCmd := flag.NewFlagSet("preview", flag.ExitOnError)
	limitCmd := flag.NewFlagSet("check-limit", flag.ExitOnError)
	tokenCmd := flag.NewFlagSet("issue-token", flag.ExitOnError)
	planCmd := flag.NewFlagSet("set-plan", flag.ExitOnError)
	auditCmd := flag.NewFlagSet("audit", flag.ExitOnError)

	deleteActor := deleteCmd.String("actor", "", "Administrator email (required)")
	deleteTarget := deleteCmd.Int64("target", 0, "Account id to delete (required)")
	deleteYes := deleteCmd.Bool("yes", false, "Skip the confirmation prompt")

	previewActor := previewCmd.String("actor", "", "Administrator email (required)")
	previewTarget := previewCmd.Int64("target", 0, "Account id to preview (required)")

	limitAccount := limitCmd.Int64("account", 0, "Account id (required)")
	limitResource := limitCmd.String("resource", "", "artwork, children or family (required)")
	limitFamily := limitCmd.Int64("family", 0, "Family id for artwork and children checks")

	tokenEmail := tokenCmd.String("email", "", "Account email (required)")

	planAccount := planCmd.Int64("account", 0, "Account id (required)")
	planID := planCmd.String("plan", "", "Plan id from the catalog (required)")
	planStatus := planCmd.String("status", string(models.SubscriptionActive), "Subscription status")

	auditTarget := auditCmd.Int64("target", 0, "Account id whose audit trail to print (required)")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg := config.Load()
	logger := logging.New(cfg.AppEnv, cfg.LogLevel)
	logger.SetOutput(os.Stderr)

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	switch os.Args[1] {
	case "delete-account":
		deleteCmd.Parse(os.Args[2:])
		if *deleteActor == "" || *deleteTarget <= 0 {
			fmt.Println("Error: -actor and -target are required")
			deleteCmd.PrintDefaults()
			os.Exit(1)
		}
		err = handleDelete(ctx, a, *deleteActor, *deleteTarget, *deleteYes)

	case "preview":
		previewCmd.Parse(os.Args[2:])
		if *previewActor == "" || *previewTarget <= 0 {
			fmt.Println("Error: -actor and -target are required")
			previewCmd.PrintDefaults()
			os.Exit(1)
		}
		err = handlePreview(ctx, a, *previewActor, *previewTarget)

	case "check-limit":
		limitCmd.Parse(os.Args[2:])
		err = handleCheckLimit(ctx, a, *limitAccount, *limitResource, *limitFamily)

	case "issue-token":
		tokenCmd.Parse(os.Args[2:])
		err = handleIssueToken(ctx, a, *tokenEmail)

	case "set-plan":
		planCmd.Parse(os.Args[2:])
		err = handleSetPlan(ctx, a, *planAccount, *planID, models.SubscriptionStatus(*planStatus))

	case "audit":
		auditCmd.Parse(os.Args[2:])
		if *auditTarget <= 0 {
			fmt.Println("Error: -target is required")
			auditCmd.PrintDefaults()
			os.Exit(1)
		}
		err = handleAudit(ctx, a, *auditTarget)

	default:
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		a.Close()
		log.Fatalf("%s failed: %v", os.Args[1], err)
	}
}

// identityFor builds the identity an operator acts as. The CLI trusts the
// caller's shell access; the admin allow-list still applies.
func identityFor(ctx context.Context, a *app.App, email string) (models.Identity, error) {
	if err := validation.ValidateEmail(email); err != nil {
		return models.Identity{}, err
	}
	user, err := a.Repos.Users.GetUserByEmail(ctx, email)
	if err != nil {
		return models.Identity{}, err
	}
	if user == nil {
		return models.Identity{}, fmt.Errorf("no account with email %s", email)
	}
	return models.Identity{AccountID: user.ID, Email: user.Email, TokenID: "cli"}, nil
}

func handleDelete(ctx context.Context, a *app.App, actorEmail string, targetID int64, skipConfirm bool) error {
	actor, err := identityFor(ctx, a, actorEmail)
	if err != nil {
		return err
	}

	preview, err := a.Deletion.PreviewAccountDeletion(ctx, actor, targetID)
	if err != nil {
		return err
	}
	if err := printJSON(preview); err != nil {
		return err
	}

	if !skipConfirm {
		fmt.Printf("WARNING: This permanently deletes account %d (%s). Type 'yes' to confirm: ", targetID, preview.Email)
		var confirmation string
		fmt.Scanln(&confirmation)
		if confirmation != "yes" {
			log.Println("Deletion cancelled")
			return nil
		}
	}

	result, err := a.Deletion.DeleteAccount(ctx, actor, targetID)
	if result != nil {
		if perr := printJSON(result); perr != nil {
			return perr
		}
	}
	return err
}

func handlePreview(ctx context.Context, a *app.App, actorEmail string, targetID int64) error {
	actor, err := identityFor(ctx, a, actorEmail)
	if err != nil {
		return err
	}
	preview, err := a.Deletion.PreviewAccountDeletion(ctx, actor, targetID)
	if err != nil {
		return err
	}
	return printJSON(preview)
}

func handleCheckLimit(ctx context.Context, a *app.App, accountID int64, resourceName string, familyID int64) error {
	resource, err := models.ParseResourceType(resourceName)
	if err != nil {
		return err
	}
	var scope *int64
	if familyID > 0 {
		scope = &familyID
	}

	plan, err := a.Plans.Resolve(ctx, accountID)
	if err != nil {
		return err
	}
	check, err := a.Quota.CheckLimit(ctx, accountID, resource, scope)
	if err != nil {
		return err
	}
	return printJSON(map[string]interface{}{
		"plan":    plan.PlanID,
		"status":  plan.Status,
		"allowed": check.Allowed,
		"limit":   check.Limit,
		"current": check.Current,
	})
}

func handleIssueToken(ctx context.Context, a *app.App, email string) error {
	id, err := identityFor(ctx, a, email)
	if err != nil {
		return err
	}
	token, err := a.Tokens.Issue(id.AccountID, id.Email)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func handleSetPlan(ctx context.Context, a *app.App, accountID int64, planID string, status models.SubscriptionStatus) error {
	if accountID <= 0 || planID == "" {
		return fmt.Errorf("-account and -plan are required")
	}
	if err := a.Repos.Subscriptions.UpsertSubscription(ctx, accountID, planID, status); err != nil {
		return err
	}
	plan, err := a.Plans.Resolve(ctx, accountID)
	if err != nil {
		return err
	}
	return printJSON(plan)
}

func handleAudit(ctx context.Context, a *app.App, targetID int64) error {
	entries, err := a.Repos.Audit.EntriesForTarget(ctx, targetID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		log.Printf("No audit entries for account %d", targetID)
		return nil
	}
	return printJSON(entries)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printUsage() {
	fmt.Println("Family Gallery Admin Tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  admin delete-account -actor <email> -target <id> [-yes]   Delete an account and its data")
	fmt.Println("  admin preview -actor <email> -target <id>                 Show what a deletion would remove")
	fmt.Println("  admin check-limit -account <id> -resource <r> [-family <id>]")
	fmt.Println("  admin issue-token -email <email>                          Print a bearer token for an account")
	fmt.Println("  admin set-plan -account <id> -plan <plan> [-status <s>]   Set an account's subscription")
	fmt.Println("  admin audit -target <id>                                  Print the audit trail of an account")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  DB_TYPE          Database type: sqlite, postgres, or mysql (default: sqlite)")
	fmt.Println("  DB_PATH          SQLite database path (default: ./familygallery.db)")
	fmt.Println("  DATABASE_URL     PostgreSQL or MySQL connection URL")
	fmt.Println("  ADMIN_EMAILS     Comma-separated administrator emails")
	fmt.Println("  PLANS_FILE       Optional YAML plan catalog")
}
