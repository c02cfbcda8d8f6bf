// Completion: 90% - Writing the rewritten package
package main

import (
	"bytes"
	"go/ast"
	"go/format"
	"go/token"
	"os"
	"path/filepath"
	"strings"

	"github.com/nikandfor/errors"
	"golang.org/x/tools/imports"
)

// bodyRange is the source range of a function body before its rewrite.
// Comments inside it no longer have a place in the output.
type bodyRange struct {
	pos, end token.Pos
}

// fileEdit collects the changes made to one file
type fileEdit struct {
	bodies []bodyRange
}

// RenderFile prints a rewritten file and fixes up its imports
func RenderFile(fset *token.FileSet, f *ast.File, edit *fileEdit) ([]byte, error) {
	dropComments(f, edit)
	var buf bytes.Buffer
	if err := format.Node(&buf, fset, f); err != nil {
		return nil, errors.Wrap(err, "print %v", f.Name.Name)
	}
	filename := fset.Position(f.Package).Filename
	out, err := imports.Process(filename, buf.Bytes(), &imports.Options{
		Comments:  true,
		TabIndent: true,
		TabWidth:  8,
	})
	if err != nil {
		return nil, errors.Wrap(err, "format %v", filename)
	}
	return out, nil
}

// dropComments removes the comments of rewritten bodies and the directive
// lines, so that the output is not rewritten a second time
func dropComments(f *ast.File, edit *fileEdit) {
	kept := f.Comments[:0]
	for _, cg := range f.Comments {
		inside := false
		if edit != nil {
			for _, b := range edit.bodies {
				if cg.Pos() >= b.pos && cg.End() <= b.end {
					inside = true
					break
				}
			}
		}
		if inside {
			continue
		}
		list := cg.List[:0]
		for _, c := range cg.List {
			if strings.TrimSpace(c.Text) != Directive {
				list = append(list, c)
			}
		}
		cg.List = list
		if len(cg.List) > 0 {
			kept = append(kept, cg)
		}
	}
	f.Comments = kept
	for _, decl := range f.Decls {
		if fn, ok := decl.(*ast.FuncDecl); ok && fn.Doc != nil && len(fn.Doc.List) == 0 {
			fn.Doc = nil
		}
	}
}

// WriteOutput writes every file of the unit into dir. Edited files are
// rendered from their syntax trees, the others are copied unchanged.
func WriteOutput(u *Unit, edits map[*ast.File]*fileEdit, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create %v", dir)
	}
	var written []string
	for _, f := range u.Files {
		src := u.Filename(f)
		dst := filepath.Join(dir, filepath.Base(src))
		var data []byte
		var err error
		if edit, ok := edits[f]; ok {
			data, err = RenderFile(u.Fset, f, edit)
		} else {
			data, err = os.ReadFile(src)
			if err != nil {
				err = errors.Wrap(err, "read %v", src)
			}
		}
		if err != nil {
			return written, err
		}
		if err := os.WriteFile(dst, data, 0o644); err != nil {
			return written, errors.Wrap(err, "write %v", dst)
		}
		written = append(written, dst)
	}
	return written, nil
}
