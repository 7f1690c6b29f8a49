// Package viz draws planar projections of simulated trajectories together
// with the obstacles and goal of their scenario.
//
//   - [Canvas]: Braille-based pixel canvas for terminal output
//   - [Scene]: a path, obstacle ellipses and a goal, rendered with
//     [Scene.Braille] or [Scene.SVG]
package viz
