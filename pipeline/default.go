package pipeline

// Default returns the stock verification pipeline: four independent jobs
// gating pushes and pull requests against main. It's what gets seeded for
// repositories that don't carry their own declaration.
func Default() *Pipeline {
	return &Pipeline{
		Name: "default",
		Trigger: Trigger{
			Events:   []string{EventPush, EventPullRequest},
			Branches: []string{"main"},
		},
		Jobs: []Job{
			{
				Name:  "build",
				Image: "rust:latest",
				Steps: []Step{
					{
						Name:      "install stable toolchain",
						Toolchain: &Toolchain{Channel: "stable", Override: true},
					},
					{
						Name: "build optimized",
						Run:  "cargo build --all --release",
					},
					{
						Name: "strip binary",
						Run:  "strip target/release/atuin",
					},
				},
			},
			{
				Name:  "test",
				Image: "rust:latest",
				Steps: []Step{
					{
						Name:      "install stable toolchain",
						Toolchain: &Toolchain{Channel: "stable", Override: true},
					},
					{
						Name: "run tests",
						Run:  "cargo test --all",
					},
				},
			},
			{
				Name:  "clippy",
				Image: "rust:latest",
				Steps: []Step{
					{
						Name: "install stable toolchain with clippy",
						Toolchain: &Toolchain{
							Channel:    "stable",
							Override:   true,
							Components: []string{"clippy"},
						},
					},
					{
						Name: "lint",
						Run:  "cargo clippy -- -D warnings",
					},
				},
			},
			{
				Name:  "format",
				Image: "rust:latest",
				Steps: []Step{
					{
						Name: "install stable toolchain with rustfmt",
						Toolchain: &Toolchain{
							Channel:    "stable",
							Override:   true,
							Components: []string{"rustfmt"},
						},
					},
					{
						Name: "check formatting",
						Run:  "cargo fmt --all -- --check",
					},
				},
			},
		},
	}
}
