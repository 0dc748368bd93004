// Package project locates a .NET project file and reads its target frameworks.
package project

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ProjectExt is the extension of C# project files
const ProjectExt = ".csproj"

// Project is a resolved project location. File is empty when a directory was
// given and it did not contain exactly one project file.
type Project struct {
	Dir  string `json:"dir"  yaml:"dir"`
	File string `json:"file" yaml:"file"`
}

// Resolve accepts either a .csproj path or a directory
func Resolve(path string) (Project, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Project{}, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return Project{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if !info.IsDir() {
		if !strings.EqualFold(filepath.Ext(abs), ProjectExt) {
			return Project{}, fmt.Errorf("%s is neither a directory nor a %s file", path, ProjectExt)
		}

		return Project{Dir: filepath.Dir(abs), File: abs}, nil
	}

	matches, err := projectFiles(abs)
	if err != nil {
		return Project{}, err
	}

	p := Project{Dir: abs}
	if len(matches) == 1 {
		p.File = matches[0]
	}

	return p, nil
}

func projectFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read project directory %s: %w", dir, err)
	}

	var files []string

	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ProjectExt) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}

	return files, nil
}

type projectXML struct {
	PropertyGroups []struct {
		TargetFramework  string `xml:"TargetFramework"`
		TargetFrameworks string `xml:"TargetFrameworks"`
	} `xml:"PropertyGroup"`
}

// TargetFrameworks returns the frameworks declared by a project file.
// <TargetFrameworks> wins over <TargetFramework>. An unreadable or malformed
// file yields no frameworks.
func TargetFrameworks(csproj string) []string {
	data, err := os.ReadFile(csproj)
	if err != nil {
		return []string{}
	}

	var doc projectXML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return []string{}
	}

	single, multi := "", ""

	for _, g := range doc.PropertyGroups {
		if single == "" {
			single = strings.TrimSpace(g.TargetFramework)
		}

		if multi == "" {
			multi = strings.TrimSpace(g.TargetFrameworks)
		}
	}

	if multi != "" {
		var frameworks []string

		for _, fw := range strings.Split(multi, ";") {
			if fw = strings.TrimSpace(fw); fw != "" {
				frameworks = append(frameworks, fw)
			}
		}

		return frameworks
	}

	if single != "" {
		return []string{single}
	}

	return []string{}
}
