package main

import (
	"fmt"
	"log/slog"
	"os"
	"path"

	"github.com/nlxr/lodestore"
)

func main() {
	// build a small node file with a cycle: root -> a -> root, root -> b
	err := os.MkdirAll("dbset", 0755)
	if err != nil {
		panic(err)
	}
	file := path.Join("dbset", "quick_start.nodes")
	f, err := os.OpenFile(file, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
	if err != nil {
		panic(err)
	}
	codec := lodestore.GraphNodeCodec{}
	// record offsets are known up front, so forward references are fine
	rootAddr := lodestore.NewNodeAddr(0, 0)
	aAddr := lodestore.NewNodeAddr(codec.EncodedSize(2), 1)
	bAddr := lodestore.NewNodeAddr(aAddr.Offset+codec.EncodedSize(1), 1)
	_, err = lodestore.AppendGraphNode(f, 0, 100, []lodestore.NodeAddr{aAddr, bAddr})
	if err != nil {
		panic(err)
	}
	_, err = lodestore.AppendGraphNode(f, 1, 200, []lodestore.NodeAddr{rootAddr})
	if err != nil {
		panic(err)
	}
	_, err = lodestore.AppendGraphNode(f, 1, 300, []lodestore.NodeAddr{{}})
	if err != nil {
		panic(err)
	}
	err = f.Close()
	if err != nil {
		panic(err)
	}

	// resolve the whole neighborhood through the registry
	r, err := lodestore.OpenMMapReader(file)
	if err != nil {
		panic(err)
	}
	defer r.Close()
	reg := lodestore.NewNodeRegistry[lodestore.GraphNode](lodestore.Config{
		FilterCapacity: 1024,
		Logger:         slog.Default(),
	}, r)
	root, err := reg.ResolveNode(rootAddr, codec.DecodeNode, 16)
	if err != nil {
		panic(err)
	}
	for _, n := range root.Data().Neighbors {
		fmt.Printf("neighbor addr=%s resolved=%t\n", n.Addr(), n.IsResolved())
	}
	// second resolve is a pure cache hit
	_, err = reg.ResolveNode(rootAddr, codec.DecodeNode, 16)
	if err != nil {
		panic(err)
	}
	fmt.Printf("cached=%d stat=%+v\n", reg.Len(), reg.Stat())
}
