package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"litman/auth"
	"litman/filestore"
	"litman/models"

	"github.com/rohanthewiz/serr"
	"github.com/spf13/cobra"
)

// ---------- Entries ----------

func (a *app) entryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entry",
		Short: "Add, list and remove bibliography entries",
	}
	cmd.AddCommand(a.entryAddCmd(), a.entryListCmd(), a.entryRemoveCmd())
	return cmd
}

func (a *app) entryAddCmd() *cobra.Command {
	var in models.EntryInput
	var journal, publisher, booktitle string

	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Title = args[0]
			switch in.Type {
			case models.EntryTypeArticle:
				in.Article = &models.Article{Journal: journal}
			case models.EntryTypeBook:
				in.Book = &models.Book{Publisher: publisher}
			case models.EntryTypeInProceedings:
				in.InProceedings = &models.InProceedings{Booktitle: booktitle, Publisher: publisher}
			}

			return a.withStore(cmd.Context(), func(store *models.Store, _ *filestore.Store) error {
				e, err := store.CreateEntry(cmd.Context(), in)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), e.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&in.Type, "type", "t", models.EntryTypeArticle, "Entry type (article, book, inproceedings)")
	cmd.Flags().StringVar(&in.Key, "key", "", "Citation key")
	cmd.Flags().StringVar(&in.DOI, "doi", "", "DOI")
	cmd.Flags().Int64Var(&in.Year, "year", 0, "Publication year")
	cmd.Flags().StringVar(&journal, "journal", "", "Journal (articles)")
	cmd.Flags().StringVar(&publisher, "publisher", "", "Publisher (books, proceedings)")
	cmd.Flags().StringVar(&booktitle, "booktitle", "", "Proceedings title (inproceedings)")
	return cmd
}

func (a *app) entryListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List entries with their authors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(store *models.Store, _ *filestore.Store) error {
				entries, err := store.ListEntries(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, e := range entries {
					authors, err := store.EntryAuthors(cmd.Context(), e.ID)
					if err != nil {
						return err
					}
					names := make([]string, len(authors))
					for i, au := range authors {
						names[i] = au.FullName()
					}

					year := ""
					if e.Year != 0 {
						year = fmt.Sprintf(" (%d)", e.Year)
					}
					fmt.Fprintf(out, "%s  %s%s\n", styles.muted.Render(e.ID), e.Title, year)
					if len(names) > 0 {
						fmt.Fprintf(out, "    %s\n", strings.Join(names, "; "))
					}
				}
				return nil
			})
		},
	}
}

func (a *app) entryRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <entry-id>",
		Aliases: []string{"remove"},
		Short:   "Delete an entry and its links",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(store *models.Store, _ *filestore.Store) error {
				return store.DeleteEntry(cmd.Context(), args[0])
			})
		},
	}
}

// ---------- Authors ----------

func (a *app) authorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "author",
		Short: "Manage authors",
	}

	var au models.Author
	add := &cobra.Command{
		Use:   "add <last-name>",
		Short: "Add an author",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			au.LastName = args[0]
			return a.withStore(cmd.Context(), func(store *models.Store, _ *filestore.Store) error {
				created, err := store.CreateAuthor(cmd.Context(), au)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), created.ID)
				return nil
			})
		},
	}
	add.Flags().StringVar(&au.FirstName, "first", "", "First name")
	add.Flags().StringVar(&au.Suffix, "suffix", "", "Suffix (Jr., III)")

	cmd.AddCommand(add)
	return cmd
}

// ---------- Keywords and collections ----------

func (a *app) keywordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keyword",
		Short: "Manage keywords",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "add <name>",
		Short: "Add a keyword",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(store *models.Store, _ *filestore.Store) error {
				k, err := store.CreateKeyword(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), k.ID)
				return nil
			})
		},
	})
	return cmd
}

func (a *app) collectionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collection",
		Short: "Manage collections",
	}

	var description string
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(store *models.Store, _ *filestore.Store) error {
				c, err := store.CreateCollection(cmd.Context(), args[0], description)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), c.ID)
				return nil
			})
		},
	}
	add.Flags().StringVar(&description, "description", "", "Collection description")

	cmd.AddCommand(add)
	return cmd
}

// ---------- Files ----------

func (a *app) fileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "file",
		Short: "Manage attachments",
	}

	var fileType string
	add := &cobra.Command{
		Use:   "add <path>",
		Short: "Copy a file into storage and create its record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.Open(args[0])
			if err != nil {
				return serr.Wrap(err, "failed to open "+args[0])
			}
			defer src.Close()

			if fileType == "" {
				fileType = strings.TrimPrefix(filepath.Ext(args[0]), ".")
			}

			return a.withStore(cmd.Context(), func(store *models.Store, files *filestore.Store) error {
				rec, err := store.CreateFile(cmd.Context(), models.File{Path: filepath.Base(args[0]), Type: fileType})
				if err != nil {
					return err
				}
				if _, err := files.Write(rec.ID, src); err != nil {
					// The record without content would be offered to peers
					if derr := store.DeleteFile(cmd.Context(), rec.ID); derr != nil {
						return serr.Wrap(derr, "failed to roll back file record after: "+err.Error())
					}
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), rec.ID)
				return nil
			})
		},
	}
	add.Flags().StringVar(&fileType, "type", "", "File type (defaults to the extension)")

	cmd.AddCommand(add)
	return cmd
}

// ---------- Links ----------

// linkKinds maps the link command's first argument to the store calls that
// add and remove that relation. Every relation is keyed by entry first.
var linkKinds = map[string]struct {
	add    func(s *models.Store, cmd *cobra.Command, entryID, otherID string) error
	remove func(s *models.Store, cmd *cobra.Command, entryID, otherID string) error
}{
	"author": {
		add: func(s *models.Store, cmd *cobra.Command, e, o string) error {
			return s.LinkAuthor(cmd.Context(), e, o)
		},
		remove: func(s *models.Store, cmd *cobra.Command, e, o string) error {
			return s.UnlinkAuthor(cmd.Context(), e, o)
		},
	},
	"file": {
		add: func(s *models.Store, cmd *cobra.Command, e, o string) error {
			return s.AttachFile(cmd.Context(), e, o)
		},
		remove: func(s *models.Store, cmd *cobra.Command, e, o string) error {
			return s.DetachFile(cmd.Context(), e, o)
		},
	},
	"keyword": {
		add: func(s *models.Store, cmd *cobra.Command, e, o string) error {
			return s.TagEntry(cmd.Context(), e, o)
		},
		remove: func(s *models.Store, cmd *cobra.Command, e, o string) error {
			return s.UntagEntry(cmd.Context(), e, o)
		},
	},
	"collection": {
		add: func(s *models.Store, cmd *cobra.Command, e, o string) error {
			return s.AddToCollection(cmd.Context(), o, e)
		},
		remove: func(s *models.Store, cmd *cobra.Command, e, o string) error {
			return s.RemoveFromCollection(cmd.Context(), o, e)
		},
	},
}

func (a *app) linkCmd() *cobra.Command {
	var remove bool

	cmd := &cobra.Command{
		Use:       "link <author|file|keyword|collection> <entry-id> <id>",
		Short:     "Link an entry to an author, file, keyword or collection",
		Args:      cobra.ExactArgs(3),
		ValidArgs: []string{"author", "file", "keyword", "collection"},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, ok := linkKinds[args[0]]
			if !ok {
				return serr.New("unknown link kind " + args[0] + "; expected author, file, keyword or collection")
			}
			return a.withStore(cmd.Context(), func(store *models.Store, _ *filestore.Store) error {
				if remove {
					return kind.remove(store, cmd, args[1], args[2])
				}
				return kind.add(store, cmd, args[1], args[2])
			})
		},
	}
	cmd.Flags().BoolVar(&remove, "remove", false, "Remove the link instead of adding it")
	return cmd
}

// ---------- Server credentials ----------

func (a *app) hashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print the bcrypt hash to put in server.password_hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := auth.HashPassword(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
