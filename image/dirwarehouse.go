package image

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
)

/*
	DirWarehouse is a Warehouse backed by a plain directory tree, laid out
	as <root>/<name>/<tag>/config.json plus every regular file in
	<root>/<name>/<tag>/layers/ (applied in lexical filename order, lowest
	layer first). It only
	implements pull, since capsulectl never publishes new images.
*/
type DirWarehouse struct {
	root string
}

func NewDirWarehouse(root string) *DirWarehouse {
	return &DirWarehouse{root: root}
}

func (w *DirWarehouse) Pull(ref Reference) ([]byte, []LayerSource, error) {
	dir := filepath.Join(w.root, ref.Name, ref.Tag)
	config, err := ioutil.ReadFile(filepath.Join(dir, "config.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, NotFound.New("no image at %s", dir)
		}
		return nil, nil, NetworkError.Wrap(err)
	}

	layerDir := filepath.Join(dir, "layers")
	entries, err := ioutil.ReadDir(layerDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, NotFound.New("image %s has no layers directory", dir)
		}
		return nil, nil, NetworkError.Wrap(err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	layers := make([]LayerSource, 0, len(names))
	for _, name := range names {
		b, err := ioutil.ReadFile(filepath.Join(layerDir, name))
		if err != nil {
			return nil, nil, NetworkError.Wrap(err)
		}
		layers = append(layers, LayerSource{Bytes: b, MediaType: "application/vnd.capsule.layer.tar"})
	}
	return config, layers, nil
}
