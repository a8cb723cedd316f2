package commands

import (
	"github.com/spf13/cobra"

	"github.com/dyluth/stacks/internal/catalog"
	"github.com/dyluth/stacks/internal/liberr"
	"github.com/dyluth/stacks/internal/printer"
	"github.com/dyluth/stacks/internal/storage"
)

var seedDBPath string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Populate the catalog with a starter set of books",
	Long: `Populate the database with a starter catalog so simulations have
something to work with. Seeding is idempotent: books already present (by
isbn) are skipped.

Examples:
  stacks seed
  stacks seed --db ./stacks.db`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().StringVar(&seedDBPath, "db", "stacks.db", "Path to the SQLite database")
	rootCmd.AddCommand(seedCmd)
}

// seedBooks is the starter catalog. It deliberately covers the subjects the
// simulation personas ask for: algorithms and Python for Alex, fiction for
// Emma and the book club, data science for Dr. Chen.
var seedBooks = []struct {
	title, author, isbn string
}{
	{"Introduction to Algorithms", "Thomas H. Cormen", "978-0-262-03384-8"},
	{"The Algorithm Design Manual", "Steven S. Skiena", "978-1-84800-069-8"},
	{"Fluent Python", "Luciano Ramalho", "978-1-491-94600-8"},
	{"Python Crash Course", "Eric Matthes", "978-1-59327-928-8"},
	{"Data Science from Scratch", "Joel Grus", "978-1-492-04113-9"},
	{"Hands-On Machine Learning", "Aurelien Geron", "978-1-492-03264-9"},
	{"Deep Learning", "Ian Goodfellow", "978-0-262-03561-3"},
	{"Pride and Prejudice", "Jane Austen", "978-0-14-143951-8"},
	{"The Remains of the Day", "Kazuo Ishiguro", "978-0-571-25824-6"},
	{"Kafka on the Shore", "Haruki Murakami", "978-1-4000-7927-6"},
	{"The Name of the Wind", "Patrick Rothfuss", "978-0-7564-0474-1"},
	{"Thinking, Fast and Slow", "Daniel Kahneman", "978-0-374-53355-7"},
}

func runSeed(cmd *cobra.Command, args []string) error {
	db, err := storage.Open(seedDBPath)
	if err != nil {
		return printer.Error("Failed to open database", err.Error(), nil)
	}
	defer db.Close()

	store := catalog.NewStore(db)

	var added, skipped int
	for _, b := range seedBooks {
		_, err := store.CreateBook(cmd.Context(), b.title, b.author, b.isbn)
		switch {
		case liberr.IsConflict(err):
			skipped++
		case err != nil:
			return printer.Error("Failed to seed catalog", err.Error(), nil)
		default:
			added++
			printer.Step("added %q by %s\n", b.title, b.author)
		}
	}

	printer.Success("Seeded catalog: %d added, %d already present\n", added, skipped)
	return nil
}
