package database

import "github.com/idoggk/moveo/pkg/types"

// DefaultBlocks is the catalog a fresh database starts with.
func DefaultBlocks() []*types.CodeBlock {
	return []*types.CodeBlock{
		{
			ID:       "1",
			Title:    "Async case",
			Template: "async function example() {\n  // Your code here\n}",
			Solution: "async function example() {\n  return await Promise.resolve('success');\n}",
		},
		{
			ID:       "2",
			Title:    "Array methods",
			Template: "const numbers = [1, 2, 3, 4, 5];\n// Your code here",
			Solution: "const numbers = [1, 2, 3, 4, 5];\nconst doubled = numbers.map(n => n * 2);",
		},
		{
			ID:       "3",
			Title:    "Promise chain",
			Template: "// Create a promise chain here",
			Solution: "Promise.resolve(1)\n  .then(x => x + 1)\n  .then(x => x * 2);",
		},
		{
			ID:       "4",
			Title:    "Event handling",
			Template: "// Add event listener here",
			Solution: "document.addEventListener('click', () => {\n  console.log('clicked!');\n});",
		},
	}
}
