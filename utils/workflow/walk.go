package workflow

// Visit is one node seen during a walk.
type Visit struct {
	Node      Node
	Parent    Node
	Depth     int
	InForeach bool
}

// Walk visits every node of the sequence depth first, parents before
// children: a switch's true branch precedes its false branch. The workflow
// level on-failure task is visited last. Returning false from fn stops the
// walk.
func Walk(def *Definition, fn func(Visit) bool) {
	var walk func(nodes []Node, parent Node, depth int, inForeach bool) bool
	walk = func(nodes []Node, parent Node, depth int, inForeach bool) bool {
		for _, n := range nodes {
			if !fn(Visit{Node: n, Parent: parent, Depth: depth, InForeach: inForeach}) {
				return false
			}
			switch c := n.(type) {
			case *Switch:
				if !walk(c.Branches.True, c, depth+1, inForeach) {
					return false
				}
				if !walk(c.Branches.False, c, depth+1, inForeach) {
					return false
				}
			case *Foreach:
				if !walk(c.Sequence, c, depth+1, true) {
					return false
				}
			}
		}
		return true
	}
	if !walk(def.Sequence, nil, 0, false) {
		return
	}
	if def.Properties.OnFailure != nil {
		fn(Visit{Node: def.Properties.OnFailure})
	}
}

// Flatten returns the walk order as a slice.
func Flatten(def *Definition) []Visit {
	var visits []Visit
	Walk(def, func(v Visit) bool {
		visits = append(visits, v)
		return true
	})
	return visits
}

// Tasks returns every task in walk order.
func Tasks(def *Definition) []*Task {
	var tasks []*Task
	Walk(def, func(v Visit) bool {
		if t, ok := v.Node.(*Task); ok {
			tasks = append(tasks, t)
		}
		return true
	})
	return tasks
}

// Find returns the visit of the node with the given id.
func Find(def *Definition, id string) (Visit, bool) {
	var found Visit
	var ok bool
	Walk(def, func(v Visit) bool {
		if v.Node.NodeID() == id {
			found, ok = v, true
			return false
		}
		return true
	})
	return found, ok
}
